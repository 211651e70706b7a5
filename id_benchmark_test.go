package mailqueue

import "testing"

func BenchmarkUUIDv7Generator(b *testing.B) {
	gen := UUIDv7Generator{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := gen.New(); err != nil {
			b.Fatalf("new id: %v", err)
		}
	}
}

func BenchmarkParseID(b *testing.B) {
	id, err := UUIDv7Generator{}.New()
	if err != nil {
		b.Fatalf("new id: %v", err)
	}
	value := id.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseID(value); err != nil {
			b.Fatalf("parse id: %v", err)
		}
	}
}
