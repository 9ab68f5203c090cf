package main

import (
	"bytes"
	"testing"

	"github.com/felixgeelhaar/pluginhost/internal/testutil"
)

const serverHost = `name: arena
log:
  level: error
plugins:
  server: [sessions, kvcache]
jobs:
  server: [presence]
units:
  kvcache:
    retry_delay: 1ms
`

// executeCommand runs the root command with args and restores global flag
// state afterwards.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile = "host.yaml"
		sideFlag = "server"
		verbose = false
		validateJSON = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WriteTempFile(t, testutil.TempConfigDir(t), name, content)
}
