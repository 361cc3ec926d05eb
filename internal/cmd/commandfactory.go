package gtcmd

import (
	"github.com/spf13/cobra"
)

// RootCommandFactory defers building the root *cobra.Command until
// Build is called, so init-time registration (Use) can still extend
// it before the tree is assembled.
type RootCommandFactory struct {
	constructor func() *cobra.Command
	options     []func(*cobra.Command)
}

// NewRootCommandFactory wraps fn, which builds the bare root command.
func NewRootCommandFactory(fn func() *cobra.Command) *RootCommandFactory {
	return &RootCommandFactory{constructor: fn}
}

// Use registers fn to run against the root command after construction.
func (f *RootCommandFactory) Use(fn func(cmd *cobra.Command)) {
	f.options = append(f.options, fn)
}

// Build constructs the root command and applies every registered
// option in order.
func (f *RootCommandFactory) Build() *cobra.Command {
	root := f.constructor()
	for _, opt := range f.options {
		opt(root)
	}
	return root
}
