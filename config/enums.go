package config

//go:generate go tool go-enum --marshal --names --nocase

// Requested result output format.
// ENUM(json, yaml, text, template)
type OutputFormat int

// Ext returns file extension suitable for the results written in this format.
func (x OutputFormat) Ext() string {
	switch x {
	case OutputFormatJson:
		return ".json"
	case OutputFormatYaml:
		return ".yaml"
	default:
		return ".txt"
	}
}
