//go:build (darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64))

package db

import (
	"database/sql/driver"

	"modernc.org/sqlite"

	"github.com/charmbracelet/codectx/internal/embeddings"
)

const driverName = "sqlite"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(
		"cosine_similarity",
		2,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			a, ok := args[0].([]byte)
			if !ok {
				return nil, nil
			}
			b, ok := args[1].([]byte)
			if !ok {
				return nil, nil
			}
			return cosineBlobs(a, b), nil
		},
	)
}

func cosineBlobs(a, b []byte) any {
	va, err := embeddings.DecodeVector(a)
	if err != nil {
		return nil
	}
	vb, err := embeddings.DecodeVector(b)
	if err != nil || len(va) != len(vb) {
		return nil
	}
	return embeddings.Cosine(va, vb)
}
