package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/configchain"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Header: []configchain.KV{
			{Key: "stages", Value: "2"},
			{Key: "skip_succeeded", Value: "0"},
			{Key: "auto_include", Value: "1"},
		},
		Blocks: []JobBlock{
			{
				ID:      0,
				Stage:   0,
				JobName: "prep",
				Backend: "local",
				Lines: []TaskLine{
					{Index: 0, Run: "r1", TaskRel: "tasks/prep"},
					{Index: 1, Run: "r2", TaskRel: "tasks/prep"},
				},
			},
			{
				ID:      1,
				Stage:   1,
				JobName: "train",
				Backend: "local",
				Depends: []int{0},
				Lines: []TaskLine{
					{Index: 2, Run: "r1", TaskRel: "tasks/train", Overrides: []configchain.KV{
						{Key: "LR", Value: "0.1"},
						{Key: "SEED", Value: "7"},
					}},
				},
			},
		},
	}
}

func TestEncodeGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleManifest().Encode(&buf))

	want := strings.Join([]string{
		"stages=2",
		"skip_succeeded=0",
		"auto_include=1",
		"---",
		"JOB\t0\t0\tprep\tlocal",
		"DEPENDS\t",
		"0\tr1\ttasks/prep",
		"1\tr2\ttasks/prep",
		"JOB\t1\t1\ttrain\tlocal",
		"DEPENDS\t0",
		"2\tr1\ttasks/train\tLR=0.1\tSEED=7",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestParseRoundTrip(t *testing.T) {
	m := sampleManifest()
	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(m, parsed); diff != "" {
		t.Fatalf("round trip mismatch (-encoded +parsed):\n%s", diff)
	}
}

func TestParseReadsJobMetadata(t *testing.T) {
	// A block with empty DEPENDS at stage 1: its whole preceding stage was
	// filtered away, so the stage must come from the JOB line, not from the
	// dependency chain.
	in := strings.Join([]string{
		"---",
		"JOB\t0\t1\ttrain\tslurm",
		"DEPENDS\t",
		"0\tr1\ttasks/train",
		"",
	}, "\n")
	m, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, m.Blocks, 1)
	assert.Equal(t, 1, m.Blocks[0].Stage)
	assert.Equal(t, "train", m.Blocks[0].JobName)
	assert.Equal(t, "slurm", m.Blocks[0].Backend)
	assert.Empty(t, m.Blocks[0].Depends)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{
			name:    "missing header terminator",
			in:      "stages=1\n",
			wantErr: "missing the --- header terminator",
		},
		{
			name:    "bad header entry",
			in:      "notakv\n---\n",
			wantErr: "not key=value",
		},
		{
			name:    "malformed JOB line",
			in:      "---\nJOB\t1\n",
			wantErr: "malformed JOB line",
		},
		{
			name:    "bad job stage",
			in:      "---\nJOB\t0\tx\ta\tlocal\n",
			wantErr: "bad job stage",
		},
		{
			name:    "DEPENDS before JOB",
			in:      "---\nDEPENDS\t0\n",
			wantErr: "DEPENDS before any JOB",
		},
		{
			name:    "task line before JOB",
			in:      "---\n0\tr1\ttasks/a\n",
			wantErr: "task line before any JOB",
		},
		{
			name:    "bad depends id",
			in:      "---\nJOB\t0\t0\ta\tlocal\nDEPENDS\tx\n",
			wantErr: "bad job id",
		},
		{
			name:    "bad override token",
			in:      "---\nJOB\t0\t0\ta\tlocal\nDEPENDS\t\n0\tr1\ttasks/a\tnoequals\n",
			wantErr: "bad override token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllocateInvocationDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "manifests")

	first, err := AllocateInvocationDir(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "invocation_1"), first)

	second, err := AllocateInvocationDir(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "invocation_2"), second)

	// A removed directory frees its number: the smallest unused suffix wins.
	require.NoError(t, os.RemoveAll(first))
	third, err := AllocateInvocationDir(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "invocation_1"), third)
}

func TestLatestInvocationDir(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		_, err := AllocateInvocationDir(root)
		require.NoError(t, err)
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "invocation_notanumber"), 0o755))

	latest, err := LatestInvocationDir(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "invocation_3"), latest)
}

func TestLatestInvocationDirEmpty(t *testing.T) {
	_, err := LatestInvocationDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no invocation directories")
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	m := sampleManifest()

	path, err := m.WriteFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	got, err := ReadFile(dir)
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("read back mismatch (-written +read):\n%s", diff)
	}
}
