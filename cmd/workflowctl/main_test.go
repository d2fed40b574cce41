package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"vm"},
		{"offering"},
		{"acl", "rules"},
		{"acl", "add"},
		{"acl", "remove"},
		{"check"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		require.Empty(t, rest, path)
		require.NotNil(t, cmd.RunE, path)
	}
}

func TestRequiredFlags(t *testing.T) {
	for _, tc := range []struct {
		path  []string
		flags []string
	}{
		{[]string{"vm"}, []string{"instance"}},
		{[]string{"offering"}, []string{"env", "cpus", "memory"}},
		{[]string{"acl", "add"}, []string{"instance", "app"}},
		{[]string{"check"}, []string{"instance"}},
	} {
		cmd, _, err := rootCmd.Find(tc.path)
		require.NoError(t, err)
		for _, name := range tc.flags {
			f := cmd.Flags().Lookup(name)
			require.NotNil(t, f, name)
			require.Equal(t, []string{"true"}, f.Annotations[cobra.BashCompOneRequiredFlag], name)
		}
	}
}
