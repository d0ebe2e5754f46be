package snmpv2c

import (
	"context"
	"testing"
)

// loopbackTransport answers every Send with a fixed response.
type loopbackTransport struct {
	response []byte
}

func (l *loopbackTransport) Send(context.Context, []byte) error { return nil }

func (l *loopbackTransport) Recv(_ context.Context, buf []byte) (int, error) {
	return copy(buf, l.response), nil
}

func (l *loopbackTransport) Close() error { return nil }

func BenchmarkBuildGet(b *testing.B) {
	var buf Buf
	community := []byte("public")
	oids := [][]uint32{sysNameOID}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = buf.BuildGet(community, int32(i), oids...)
	}
}

func BenchmarkBuildResponse(b *testing.B) {
	var buf Buf
	community := []byte("public")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = buf.BuildResponse(community, int32(i), NoError, 0, allValues)
	}
}

func BenchmarkDecode(b *testing.B) {
	var buf Buf
	if err := buf.BuildResponse([]byte("public"), 1, NoError, 0, allValues); err != nil {
		b.Fatal(err)
	}
	msg := buf.Bytes()

	var d decoder
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = d.decode(msg)
	}
}

// BenchmarkSessionGet runs the whole exchange against a transport that
// answers at once; the request-id never matches after the first call, so
// the correlation rejection path is measured too.
func BenchmarkSessionGet(b *testing.B) {
	s := &Session{Community: "public", RequestID: 1, Conn: &loopbackTransport{response: getResponseSysName}}
	if err := s.Connect(); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(sysNameOID)
	}
}
