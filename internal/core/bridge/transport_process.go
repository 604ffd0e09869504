package bridge

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

const maxLineBytes = 16 * 1024 * 1024

// ProcessTransport 透過子行程的 stdin/stdout 交換以換行分隔的 JSON
type ProcessTransport struct {
	command string
	args    []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// NewProcessTransport 創建子行程傳輸層
func NewProcessTransport(command string, args ...string) *ProcessTransport {
	return &ProcessTransport{command: command, args: args}
}

// Start 啟動子行程並開始讀取輸出
func (t *ProcessTransport) Start(onMessage func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd != nil {
		return fmt.Errorf("process transport already started")
	}

	cmd := exec.Command(t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.done = make(chan struct{})

	go t.readLoop(stdout, onMessage)
	go t.drainStderr(stderr)

	common.LogInfo("直譯器子行程已啟動",
		zap.String("command", t.command),
		zap.Int("pid", cmd.Process.Pid),
	)
	return nil
}

func (t *ProcessTransport) readLoop(r io.Reader, onMessage func([]byte)) {
	defer close(t.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		onMessage(msg)
	}
	if err := scanner.Err(); err != nil {
		common.LogError("讀取直譯器輸出失敗", zap.Error(err))
	}
}

func (t *ProcessTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		common.LogDebug("直譯器 stderr", zap.String("line", scanner.Text()))
	}
}

// Send 寫入一行訊息
func (t *ProcessTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin == nil {
		return fmt.Errorf("process transport not started")
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := t.stdin.Write(buf); err != nil {
		return fmt.Errorf("write to interpreter: %w", err)
	}
	return nil
}

// Close 結束子行程
func (t *ProcessTransport) Close() error {
	t.mu.Lock()
	cmd, stdin, done := t.cmd, t.stdin, t.done
	t.cmd, t.stdin = nil, nil
	t.mu.Unlock()

	if cmd == nil {
		return nil
	}
	_ = stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	if err := cmd.Wait(); err != nil {
		common.LogDebug("直譯器子行程已結束", zap.Error(err))
	}
	return nil
}
