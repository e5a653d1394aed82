package sqlite

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"

	"github.com/poiesic/embedbase/storage"
)

const cosineFunction = "embedbase_cosine"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions makes the cosine function available to connections
// opened afterwards.
func registerFunctions() error {
	registerOnce.Do(func() {
		err := sqlite.RegisterDeterministicScalarFunction(cosineFunction, 2, cosineImpl)
		if err != nil && !strings.Contains(err.Error(), "already registered") {
			registerErr = err
		}
	})
	return registerErr
}

func cosineImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: expected 2 arguments, got %d", cosineFunction, len(args))
	}
	a, err := embeddingArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := embeddingArg(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	return float64(storage.CosineSimilarity(a, b)), nil
}

func embeddingArg(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeEmbedding(v)
	}
	return nil, fmt.Errorf("%s: unsupported argument type %T, want BLOB", cosineFunction, arg)
}

// encodeEmbedding packs a vector as little-endian float32s.
// A nil vector is stored as NULL.
func encodeEmbedding(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding blob length %d", storage.ErrSerializationFailed, len(data))
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats, nil
}
