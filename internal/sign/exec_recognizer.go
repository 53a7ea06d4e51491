package sign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/ablelabs/able-core/internal/config"
)

type execRecognizer struct {
	cmd []string
	cfg config.SignConfig
	mu  sync.Mutex
}

// NewExecRecognizer shells out to a configured command, handing it the
// recorded video as a temp file and reading a JSON result from stdout.
func NewExecRecognizer(cfg config.SignConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse sign command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("sign command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Recognize(ctx context.Context, video []byte, mimeType string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext := ".bin"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	file, err := os.CreateTemp(os.TempDir(), "able_sign_*"+ext)
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(video); err != nil {
		return Result{}, fmt.Errorf("write video: %w", err)
	}

	args := append([]string{}, r.cmd...)
	base := args[0]
	cmdArgs := append(args[1:], "--video", file.Name())
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("sign command failed: %w: %s", err, stderr.String())
	}

	var resp Result
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode sign response: %w", err)
	}
	return resp, nil
}
