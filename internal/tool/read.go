package tool

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidev/agentcore/internal/freshness"
	"github.com/aidev/agentcore/pkg/types"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers
- Can read image files and return them as base64 data attachments`

const readArgSchema = `{
	"type": "object",
	"properties": {
		"file_path": {"type": "string", "description": "The absolute path to the file to read"},
		"offset": {"type": "integer", "description": "Line number to start reading from"},
		"limit": {"type": "integer", "description": "Number of lines to read (default: 2000)"}
	},
	"required": ["file_path"]
}`

type readArgs struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// NewReadDescriptor builds the Read tool. Every successful read marks
// tracker's record for the path fresh (spec §4.3), which is what lets a
// later Write/Edit of the same path skip the "must read before modify"
// refusal.
func NewReadDescriptor(tracker *freshness.Tracker) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Read",
		Description:    readDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(readArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args readArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("read: invalid args: %w", err)
			}
			if shouldBlockEnvFile(args.FilePath) {
				return nil, fmt.Errorf("read: access to %s is blocked", args.FilePath)
			}
			if args.Limit <= 0 {
				args.Limit = 2000
			}

			info, err := os.Stat(args.FilePath)
			if err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("read: %s is a directory", args.FilePath)
			}

			if isImageFile(args.FilePath) {
				return readImageResult(args.FilePath)
			}
			if isBinaryFile(args.FilePath) {
				return nil, fmt.Errorf("read: %s appears to be binary", args.FilePath)
			}

			output, lineCount, err := readTextFile(args.FilePath, args.Offset, args.Limit)
			if err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}

			tracker.UpdateRead(args.FilePath)

			return &types.ToolResult{
				Content:  output,
				Artifact: map[string]any{"file": args.FilePath, "lines": lineCount},
			}, nil
		},
	}
}

func readTextFile(path string, offset, limit int) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if offset > 0 && lineNum < offset {
			continue
		}
		if len(lines) >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > 2000 {
			line = line[:2000] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))

	lastReadLine := offset + len(lines)
	if lineNum > lastReadLine {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' to read beyond line %d)", lastReadLine))
	} else {
		sb.WriteString(fmt.Sprintf("\n\n(End of file - total %d lines)", lineNum))
	}
	sb.WriteString("\n</file>")
	return sb.String(), lineNum, nil
}

func readImageResult(path string) (*types.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mediaType := detectMediaType(path)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
	return &types.ToolResult{
		Content:  "(image file)",
		Artifact: map[string]any{"filename": filepath.Base(path), "media_type": mediaType, "url": dataURL},
	}, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}
	nonPrintable := 0
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
		if buf[i] < 32 && buf[i] != '\n' && buf[i] != '\r' && buf[i] != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

// shouldBlockEnvFile refuses .env-shaped paths except the documented
// sample/example whitelist, mirroring the teacher's read guard.
func shouldBlockEnvFile(path string) bool {
	for _, allowed := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(path, allowed) {
			return false
		}
	}
	return strings.Contains(path, ".env")
}
