package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// readPayloads decodes a JSON array, a single JSON object or JSON Lines.
// Numbers are kept as json.Number.
func readPayloads(r io.Reader) ([]map[string]interface{}, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()
	if first == '[' {
		var out []map[string]interface{}
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return out, nil
	}

	// one object, or one object per line
	var out []map[string]interface{}
	for n := 1; ; n++ {
		var p map[string]interface{}
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", n, err)
		}
		out = append(out, p)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

func readPayloadFile(path string) ([]map[string]interface{}, error) {
	if path == "-" {
		return readPayloads(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ps, err := readPayloads(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}
