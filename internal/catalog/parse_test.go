package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/daymake/pkg/model"
)

func TestParseDefinition_YAML(t *testing.T) {
	data := []byte(`
description: upgrade packages
command: apt-get upgrade -y
start_after: "05:00"
days: 0
depends_on:
  - update1
  - update0
`)
	job, diags := ParseDefinition("update2", data)

	assert.Empty(t, diags)
	assert.Equal(t, "update2", job.ID)
	assert.Equal(t, "upgrade packages", job.Description)
	assert.Equal(t, "apt-get upgrade -y", job.Command)
	assert.Equal(t, "05:00", job.StartAfter)
	assert.Equal(t, "0", job.Days)
	assert.Equal(t, []string{"update1", "update0"}, job.DependsOn)
}

func TestParseDefinition_CommaSeparatedDependsOn(t *testing.T) {
	job, _ := ParseDefinition("x", []byte("command: true\ndepends_on: a, b ,a\n"))
	assert.Equal(t, []string{"a", "b"}, job.DependsOn)
}

func TestParseDefinition_PlainLinesFallback(t *testing.T) {
	// Not valid YAML: the command contains ": " inside a plain scalar.
	data := []byte(`# nightly upgrade
description: upgrade
command: echo step: upgrade
start_after: 5:30
depends_on: update1
not a field line
`)
	job, diags := ParseDefinition("update2", data)

	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0], "reading key: value lines")
	assert.Equal(t, "echo step: upgrade", job.Command)
	assert.Equal(t, "05:30", job.StartAfter)
	assert.Equal(t, []string{"update1"}, job.DependsOn)
	assert.Equal(t, model.DefaultDays, job.Days)
}

func TestParseDefinition_Defaults(t *testing.T) {
	job, diags := ParseDefinition("empty", nil)

	assert.Equal(t, "", job.Description)
	assert.Equal(t, model.DefaultCommand, job.Command)
	assert.Equal(t, model.DefaultStartAfter, job.StartAfter)
	assert.Equal(t, model.DefaultDays, job.Days)
	assert.Equal(t, []string{}, job.DependsOn)
	assert.Len(t, diags, 3) // description, command, start_after
}

func TestParseDefinition_Problems(t *testing.T) {
	data := []byte(`id: something-else
description: d
command: true
start_after: "25:99"
owner: ops
retries: 3
`)
	job, diags := ParseDefinition("real-id", data)

	assert.Equal(t, "real-id", job.ID)
	assert.Equal(t, model.DefaultStartAfter, job.StartAfter)
	assert.Contains(t, diags, "extraneous id field ignored, id is derived from the file path")
	assert.Contains(t, diags, `malformed start_after "25:99", assuming 00:00`)
	assert.Contains(t, diags, "unknown fields: owner, retries")
}

func TestParseDefinition_ScalarsVerbatim(t *testing.T) {
	data := []byte(`description: yes
command: 007
days: 0x1F
depends_on: [010, "b"]
`)
	job, diags := ParseDefinition("verbatim", data)

	for _, d := range diags {
		assert.NotContains(t, d, "not a YAML mapping")
	}
	assert.Equal(t, "yes", job.Description)
	assert.Equal(t, "007", job.Command)
	assert.Equal(t, "0x1F", job.Days)
	assert.Equal(t, []string{"010", "b"}, job.DependsOn)
}

func TestParseDefinition_NestedMappingFallsBack(t *testing.T) {
	job, diags := ParseDefinition("nested", []byte("command:\n  run: true\n"))

	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0], "command must be a scalar or a list")
	assert.Equal(t, model.DefaultCommand, job.Command)
}
