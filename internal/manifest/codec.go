package manifest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vk/taskgrid/internal/configchain"
)

// Encode writes the manifest in its exact wire form: header key=value lines,
// a mandatory "---" terminator, then the job blocks. Fields are
// tab-separated; task paths are workspace-relative; override tokens trail
// each task line. The JOB line carries the block's stage, job name and
// backend so external executors and the status helper can consume the file
// without re-resolving anything. Given identical input the output is
// byte-identical.
func (m *Manifest) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, kv := range m.Header {
		fmt.Fprintf(bw, "%s=%s\n", kv.Key, kv.Value)
	}
	fmt.Fprintln(bw, "---")
	for _, block := range m.Blocks {
		fmt.Fprintf(bw, "JOB\t%d\t%d\t%s\t%s\n", block.ID, block.Stage, block.JobName, block.Backend)
		fmt.Fprintf(bw, "DEPENDS\t%s\n", joinIDs(block.Depends))
		for _, line := range block.Lines {
			fmt.Fprintf(bw, "%d\t%s\t%s", line.Index, line.Run, line.TaskRel)
			for _, kv := range line.Overrides {
				fmt.Fprintf(bw, "\t%s=%s", kv.Key, kv.Value)
			}
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Parse reads a manifest back from its wire form. The stage is read from the
// JOB line rather than derived from DEPENDS, so a block whose entire
// preceding stage was filtered away (empty DEPENDS at stage >= 1) keeps its
// true stage.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)

	inHeader := true
	var current *JobBlock
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if inHeader {
			if line == "---" {
				inHeader = false
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("manifest line %d: header entry %q is not key=value", lineNo, line)
			}
			m.Header = append(m.Header, configchain.KV{Key: key, Value: value})
			continue
		}

		fields := strings.Split(line, "\t")
		switch fields[0] {
		case "JOB":
			if len(fields) != 5 {
				return nil, fmt.Errorf("manifest line %d: malformed JOB line", lineNo)
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: bad job id: %w", lineNo, err)
			}
			stage, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: bad job stage: %w", lineNo, err)
			}
			m.Blocks = append(m.Blocks, JobBlock{
				ID:      id,
				Stage:   stage,
				JobName: fields[3],
				Backend: fields[4],
			})
			current = &m.Blocks[len(m.Blocks)-1]
		case "DEPENDS":
			if current == nil {
				return nil, fmt.Errorf("manifest line %d: DEPENDS before any JOB", lineNo)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("manifest line %d: malformed DEPENDS line", lineNo)
			}
			deps, err := splitIDs(fields[1])
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
			}
			current.Depends = deps
		default:
			if current == nil {
				return nil, fmt.Errorf("manifest line %d: task line before any JOB", lineNo)
			}
			taskLine, err := parseTaskLine(fields)
			if err != nil {
				return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
			}
			current.Lines = append(current.Lines, taskLine)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inHeader {
		return nil, fmt.Errorf("manifest is missing the --- header terminator")
	}
	return m, nil
}

func parseTaskLine(fields []string) (TaskLine, error) {
	if len(fields) < 3 {
		return TaskLine{}, fmt.Errorf("task line needs at least index, run and task path")
	}
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return TaskLine{}, fmt.Errorf("bad task line index: %w", err)
	}
	line := TaskLine{Index: index, Run: fields[1], TaskRel: fields[2]}
	for _, tok := range fields[3:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return TaskLine{}, fmt.Errorf("bad override token %q", tok)
		}
		line.Overrides = append(line.Overrides, configchain.KV{Key: key, Value: value})
	}
	return line, nil
}

func splitIDs(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad job id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
