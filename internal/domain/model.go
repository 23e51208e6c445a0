package domain

type Model struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Installed   bool   `json:"installed" yaml:"-"`
}
