package nabu

import (
	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/jobfile"
	"github.com/nabu-speech/nabu-ctl/internal/manifest"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
	"github.com/nabu-speech/nabu-ctl/internal/system"
	"github.com/nabu-speech/nabu-ctl/internal/tfrecord"
)

// Type aliases re-export the internal types the Client works with.

type Config = dataconf.Config
type Spec = dataconf.Spec
type CheckResult = manifest.CheckResult
type SpecStatus = manifest.SpecStatus
type Job = jobfile.Descriptor
type Settings = settings.Settings
type Stdio = system.Stdio
type CommandExecutor = system.CommandExecutor
type UnknownCommandError = dispatch.UnknownCommandError
type ExitError = dispatch.ExitError
type RecordWriter = tfrecord.FileWriter
type Array = tfrecord.Array

// Commands lists the pipeline commands Run accepts.
var Commands = dispatch.Commands

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	return dispatch.ExitCode(err)
}
