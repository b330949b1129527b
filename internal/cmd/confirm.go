package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// promptConfirmer asks on out and reads a y/n answer from in. Anything but
// an explicit yes declines.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p *promptConfirmer) ConfirmCost(ctx context.Context, dollars float64, texts int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "Embedding %s texts will cost about %s. Continue? [y/N] ",
		humanize.Comma(int64(texts)), formatDollars(dollars))
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func formatDollars(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}
