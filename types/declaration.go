package types

// Declaration is the reporting metadata attached to a single test function.
// A candidate without a Declaration is never aggregated.
type Declaration struct {
	Key      string     `yaml:"key"`
	Name     string     `yaml:"name,omitempty"`
	Category string     `yaml:"category,omitempty"`
	Tags     []string   `yaml:"tags,omitempty"`
	Tickets  []string   `yaml:"tickets,omitempty"`
	Flags    []TestFlag `yaml:"flags,omitempty"`
}

// GroupDeclaration carries metadata shared by every test of a group (a test
// class, suite or package).
type GroupDeclaration struct {
	Category string   `yaml:"category,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Tickets  []string `yaml:"tickets,omitempty"`
}
