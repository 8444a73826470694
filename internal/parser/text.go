package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

func openText(data []byte, opts Options) (Handle, error) {
	blocks, err := textBlocks(data)
	if err != nil {
		return nil, err
	}
	return newReflowDoc(blocks, nil, opts), nil
}

// textBlocks splits plain text into paragraphs on blank lines.
func textBlocks(data []byte) ([]block, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []block
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, block{text: strings.Join(current, " ")})
			current = current[:0]
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return blocks, nil
}
