package cli

import (
	"strings"

	"github.com/rprtr258/fun"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/watch"
)

func registerFlagCompletionFunc(
	c *cobra.Command,
	name string,
	f func(toComplete string) ([]string, cobra.ShellCompDirective),
) {
	if err := c.RegisterFlagCompletionFunc(
		name,
		func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return f(toComplete)
		}); err != nil {
		log.Panic().
			Err(err).
			Str("flagName", name).
			Str("command", c.Name()).
			Msg("failed to register flag completion func")
	}
}

func completeWords(words ...string) func(string) ([]string, cobra.ShellCompDirective) {
	return func(prefix string) ([]string, cobra.ShellCompDirective) {
		return fun.FilterMap[string](
			func(word string) (string, bool) {
				return word, strings.HasPrefix(word, prefix)
			},
			words...,
		), cobra.ShellCompDirectiveNoFileComp
	}
}

var (
	completeFlagKind   = completeWords(inotify.KindNames()...)
	completeFlagPolicy = completeWords(string(watch.PolicyEvents), string(watch.PolicyWake))
)

func completeArgRoots(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}
