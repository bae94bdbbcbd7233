package mirror

// Config is the list of mirrors to update and the policy used when
// one of them fails.
type Config struct {
	// ContinueOnError makes the run attempt every mirror even if an earlier
	// one failed. All failures are reported together at the end.
	// default is false, the run stops at the first failing mirror
	ContinueOnError bool `yaml:"continue_on_error" toml:"continue_on_error"`

	// Mirrors is the ordered list of source/destination pairs.
	// duplicates are allowed and are processed independently
	Mirrors []Spec `yaml:"mirrors" toml:"mirrors"`
}

// Spec represents single mirror, the repository at From is pushed to To.
type Spec struct {
	// git URL of the source repository
	From string `yaml:"from" toml:"from"`

	// git URL of the destination repository
	To string `yaml:"to" toml:"to"`
}

func (s Spec) String() string {
	return s.From + " -> " + s.To
}
