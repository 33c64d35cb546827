package compress

import (
	"bytes"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestCompressors(t *testing.T) {
	tests := []struct {
		name string
		alg  Type
		data []byte
	}{
		{"Success: gzip small data", CmpGzip, []byte("hello world")},
		{"Success: gzip large data", CmpGzip, bytes.Repeat([]byte("hello world "), 1000)},
		{"Success: snappy small data", CmpSnappy, []byte("hello world")},
		{"Success: snappy large data", CmpSnappy, bytes.Repeat([]byte("hello world "), 1000)},
		{"Success: zstd small data", CmpZstd, []byte("hello world")},
		{"Success: zstd large data", CmpZstd, bytes.Repeat([]byte("hello world "), 1000)},
		{"Success: none passthrough", CmpNone, []byte("hello world")},
	}

	for _, test := range tests {
		compressed, err := Compress(test.alg, test.data)
		switch {
		case err != nil:
			t.Errorf("TestCompressors(%s): Compress got err == %s, want err == nil", test.name, err)
			continue
		}

		decompressed, err := Decompress(test.alg, compressed)
		switch {
		case err != nil:
			t.Errorf("TestCompressors(%s): Decompress got err == %s, want err == nil", test.name, err)
			continue
		}

		if diff := pretty.Compare(test.data, decompressed); diff != "" {
			t.Errorf("TestCompressors(%s): roundtrip mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestCompressEmptyData(t *testing.T) {
	tests := []struct {
		name string
		alg  Type
	}{
		{"Success: gzip empty", CmpGzip},
		{"Success: snappy empty", CmpSnappy},
		{"Success: zstd empty", CmpZstd},
		{"Success: none empty", CmpNone},
	}

	for _, test := range tests {
		compressed, err := Compress(test.alg, nil)
		switch {
		case err != nil:
			t.Errorf("TestCompressEmptyData(%s): Compress got err == %s, want err == nil", test.name, err)
			continue
		}

		decompressed, err := Decompress(test.alg, compressed)
		switch {
		case err != nil:
			t.Errorf("TestCompressEmptyData(%s): Decompress got err == %s, want err == nil", test.name, err)
			continue
		}

		if len(decompressed) != 0 {
			t.Errorf("TestCompressEmptyData(%s): got len %d, want 0", test.name, len(decompressed))
		}
	}
}

func TestCompressActuallyCompresses(t *testing.T) {
	// Test that compression actually reduces size for compressible data.
	data := bytes.Repeat([]byte("hello world "), 1000) // 12000 bytes of repetitive data

	tests := []struct {
		name string
		alg  Type
	}{
		{"Success: gzip compresses", CmpGzip},
		{"Success: snappy compresses", CmpSnappy},
		{"Success: zstd compresses", CmpZstd},
	}

	for _, test := range tests {
		compressed, err := Compress(test.alg, data)
		switch {
		case err != nil:
			t.Errorf("TestCompressActuallyCompresses(%s): got err == %s, want err == nil", test.name, err)
			continue
		}

		if len(compressed) >= len(data) {
			t.Errorf("TestCompressActuallyCompresses(%s): compressed size %d >= original size %d", test.name, len(compressed), len(data))
		}
	}
}

func TestCustomCompressor(t *testing.T) {
	// Test that custom compressors can be registered and used.
	custom := &testCompressor{}
	Register(custom)

	data := []byte("test data")
	compressed, err := Compress(Type(100), data)
	switch {
	case err != nil:
		t.Errorf("TestCustomCompressor: Compress got err == %s, want err == nil", err)
		return
	}

	decompressed, err := Decompress(Type(100), compressed)
	switch {
	case err != nil:
		t.Errorf("TestCustomCompressor: Decompress got err == %s, want err == nil", err)
		return
	}

	if diff := pretty.Compare(data, decompressed); diff != "" {
		t.Errorf("TestCustomCompressor: roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnregisteredCompressor(t *testing.T) {
	// Test that unregistered compressor returns error.
	_, err := Compress(Type(200), []byte("data"))
	if err == nil {
		t.Errorf("TestUnregisteredCompressor: Compress got err == nil, want err != nil")
	}

	_, err = Decompress(Type(200), []byte("data"))
	if err == nil {
		t.Errorf("TestUnregisteredCompressor: Decompress got err == nil, want err != nil")
	}
}

func TestGetCompressor(t *testing.T) {
	tests := []struct {
		name    string
		alg     Type
		wantNil bool
	}{
		{"Success: get gzip", CmpGzip, false},
		{"Success: get snappy", CmpSnappy, false},
		{"Success: get zstd", CmpZstd, false},
		{"Success: get none returns nil", CmpNone, true},
		{"Success: get unregistered returns nil", Type(250), true},
	}

	for _, test := range tests {
		c := Get(test.alg)
		switch {
		case test.wantNil && c != nil:
			t.Errorf("TestGetCompressor(%s): got compressor, want nil", test.name)
		case !test.wantNil && c == nil:
			t.Errorf("TestGetCompressor(%s): got nil, want compressor", test.name)
		}
	}
}

// testCompressor is a simple compressor for testing custom registration.
type testCompressor struct{}

func (t *testCompressor) Type() Type { return Type(100) }

func (t *testCompressor) Compress(data []byte) ([]byte, error) {
	// Simple "compression": just reverse the bytes
	result := make([]byte, len(data))
	for i, b := range data {
		result[len(data)-1-i] = b
	}
	return result, nil
}

func (t *testCompressor) Decompress(data []byte) ([]byte, error) {
	// "Decompress": reverse back
	result := make([]byte, len(data))
	for i, b := range data {
		result[len(data)-1-i] = b
	}
	return result, nil
}
