package models

// StartRequest is the payload for POST /api/v1/batches and the CLI run command.
type StartRequest struct {
	// Mode selects the driver: maps, dns, faq or backup. Required.
	Mode string `json:"mode" binding:"required,oneof=maps dns faq backup"`

	// Targets is the raw comma-separated target string. Required.
	Targets string `json:"targets" binding:"required"`

	// Input overrides how Targets is interpreted: query, domain, urls or
	// sitemap. Empty picks the mode's default.
	Input string `json:"input,omitempty" binding:"omitempty,oneof=query domain urls sitemap"`

	Options StartOptions `json:"options"`
}

// StartOptions are per-batch overrides of the configured defaults.
type StartOptions struct {
	Headless *bool  `json:"headless,omitempty"`
	Proxy    string `json:"proxy,omitempty"`

	// MaxRecords bounds maps listings / faq questions per target. 0 uses the default.
	MaxRecords int `json:"max_records,omitempty" binding:"omitempty,min=1,max=5000"`

	// Enrich toggles website/VAT enrichment of maps listings.
	Enrich bool `json:"enrich,omitempty"`

	// Related adds the related searches panel to faq output.
	Related bool `json:"related,omitempty"`

	// Performance and Archive add the external audits to dns records.
	Performance bool `json:"performance,omitempty"`
	Archive     bool `json:"archive,omitempty"`

	// DownloadMedia stores page media under media/ in backup mode.
	DownloadMedia bool `json:"download_media,omitempty"`

	// OutputFormat overrides the persisted table format: csv, xlsx or sqlite.
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=csv xlsx sqlite"`

	// Language is the hl parameter for Google surfaces. Default "en".
	Language string `json:"language,omitempty"`
}
