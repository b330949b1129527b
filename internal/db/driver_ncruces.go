//go:build !((darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64)))

package db

import (
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

const driverName = "sqlite3"

func init() {
	sqlite3.AutoExtension(func(c *sqlite3.Conn) error {
		return c.CreateFunction("cosine_similarity", 2, sqlite3.DETERMINISTIC, func(ctx sqlite3.Context, args ...sqlite3.Value) {
			if len(args) != 2 {
				ctx.ResultNull()
				return
			}
			a, err := embeddings.DecodeVector(args[0].Blob(nil))
			if err != nil {
				ctx.ResultNull()
				return
			}
			b, err := embeddings.DecodeVector(args[1].Blob(nil))
			if err != nil || len(a) != len(b) {
				ctx.ResultNull()
				return
			}
			ctx.ResultFloat(embeddings.Cosine(a, b))
		})
	})
}
