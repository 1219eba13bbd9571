package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustFlag reads a flag registered in init(). A lookup error is a programming
// bug, so it panics.
func mustFlag[T any](get func(string) (T, error), name string) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(c *cobra.Command, name string) bool {
	return mustFlag(c.Flags().GetBool, name)
}

func mustGetInt(c *cobra.Command, name string) int {
	return mustFlag(c.Flags().GetInt, name)
}

func mustGetString(c *cobra.Command, name string) string {
	return mustFlag(c.Flags().GetString, name)
}

func mustGetFloat64(c *cobra.Command, name string) float64 {
	return mustFlag(c.Flags().GetFloat64, name)
}
