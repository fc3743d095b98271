package std

import (
	"encoding/binary"
	"math"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// packVector encodes floats as little-endian float32, the canonical
// embedding wire format (4*dimension bytes, no header).
func packVector(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

func unpackVector(data []byte, dimension int) ([]float64, error) {
	if len(data) != 4*dimension {
		return nil, types.NewError(types.ErrMapping,
			"vector is %d bytes, want %d for dimension %d", len(data), 4*dimension, dimension)
	}
	values := make([]float64, dimension)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return values, nil
}

// VectorPack converts a float list to embedding bytes.
func VectorPack(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "vector_list")
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(items))
	for _, item := range items {
		n, ok := asNumber(item)
		if !ok {
			return nil, types.NewError(types.ErrMapping, "vector_list must contain only numbers")
		}
		values = append(values, n)
	}
	return map[string]any{"vector": packVector(values), "dimension": float64(len(values))}, nil
}

// VectorUnpack converts embedding bytes back to a float list.
func VectorUnpack(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	data, err := bytesArg(args, "vector")
	if err != nil {
		return nil, err
	}
	dimension := optIntArg(args, "dimension", len(data)/4)

	values, err := unpackVector(data, dimension)
	if err != nil {
		return nil, err
	}
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return map[string]any{"vector_list": list}, nil
}

// VectorCosineSimilarity computes the dot product of two vectors, clamped
// to [0, 1]. Assumes L2-normalized inputs.
func VectorCosineSimilarity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	a, err := bytesArg(args, "vector_a")
	if err != nil {
		return nil, err
	}
	b, err := bytesArg(args, "vector_b")
	if err != nil {
		return nil, err
	}
	dimension := optIntArg(args, "dimension", len(a)/4)

	va, err := unpackVector(a, dimension)
	if err != nil {
		return nil, err
	}
	vb, err := unpackVector(b, dimension)
	if err != nil {
		return nil, err
	}

	dot := 0.0
	for i := range va {
		dot += va[i] * vb[i]
	}
	return map[string]any{"similarity": math.Max(0, math.Min(1, dot))}, nil
}

// VectorMean computes the centroid of a list of vectors.
func VectorMean(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "vectors")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return map[string]any{"error": "no_vectors", "vector": nil, "dimension": float64(0)}, nil
	}
	dimension := optIntArg(args, "dimension", 0)
	if dimension <= 0 {
		return nil, types.NewError(types.ErrMapping, "missing required argument %q", "dimension")
	}

	sums := make([]float64, dimension)
	for _, item := range items {
		raw, ok := item.([]byte)
		if !ok {
			if s, sok := item.(string); sok {
				decoded, err := bytesArg(map[string]any{"v": s}, "v")
				if err != nil {
					return nil, err
				}
				raw = decoded
			} else {
				return nil, types.NewError(types.ErrMapping, "vectors must contain bytes")
			}
		}
		values, err := unpackVector(raw, dimension)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			sums[i] += v
		}
	}

	n := float64(len(items))
	for i := range sums {
		sums[i] /= n
	}
	return map[string]any{"vector": packVector(sums), "dimension": float64(dimension)}, nil
}

// EmbeddingGet retrieves the stored embedding for an entity.
func EmbeddingGet(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	rec, err := ec.Store.GetEmbedding(ec.Context(), entityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return map[string]any{"vector": nil, "dimension": float64(0), "model_name": nil, "found": false}, nil
	}
	return map[string]any{
		"vector":     rec.Vector,
		"dimension":  float64(rec.Dimension),
		"model_name": rec.ModelName,
		"found":      true,
	}, nil
}
