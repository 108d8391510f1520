package verbose

// VerboseFormatter formats verbose events for output.
type VerboseFormatter interface {
	// Format converts a VerboseEvent into a string ready to write,
	// trailing newline included.
	Format(event VerboseEvent) string
}
