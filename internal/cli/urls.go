package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// readURLs 每行一個網址，忽略空行與 # 開頭的註解，重複網址只保留第一次
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// collectURLs 合併參數與檔案中的網址，檔名為 - 時讀取標準輸入
func collectURLs(args []string, file string, stdin io.Reader) ([]string, error) {
	var sources []string
	sources = append(sources, args...)

	if file != "" {
		var r io.Reader = stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, fmt.Errorf("failed to open urls file: %w", err)
			}
			defer f.Close()
			r = f
		}
		fromFile, err := readURLs(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read urls file: %w", err)
		}
		sources = append(sources, fromFile...)
	}

	return readURLs(strings.NewReader(strings.Join(sources, "\n")))
}
