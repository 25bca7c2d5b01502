package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonsphere/weave/internal/contract"
)

const maxCallLine = 1 << 20

// serve answers ABI calls read from in, one per line as
// "<sender> <calldata-hex>", until in is exhausted or ctx is done. Each
// call gets one line on out: "ok 0x<output>" or "err <message>".
func serve(ctx context.Context, d *contract.Dispatcher, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), maxCallLine)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			res, err := serveCall(ctx, d, line)
			if err != nil {
				_, err = fmt.Fprintf(out, "err %v\n", err)
			} else {
				_, err = fmt.Fprintf(out, "ok 0x%s\n", hex.EncodeToString(res))
			}
			if err != nil {
				return err
			}
		}
	}
}

func serveCall(ctx context.Context, d *contract.Dispatcher, line string) ([]byte, error) {
	sender, data, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("want \"<sender> <calldata-hex>\"")
	}
	if !common.IsHexAddress(sender) {
		return nil, fmt.Errorf("invalid sender %q", sender)
	}
	calldata, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(data), "0x"))
	if err != nil {
		return nil, fmt.Errorf("calldata: %w", err)
	}
	return d.Call(ctx, common.HexToAddress(sender), calldata)
}
