package dnslookup

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"

	"github.com/cuemby/appcluster/pkg/status"
)

func TestClassifySuccessMasterTTL(t *testing.T) {
	tests := []struct {
		name             string
		ttl              uint32
		strictTTL        bool
		masterRecordsTTL int
		wantWarning      bool
	}{
		{name: "strict exact match", ttl: 300, strictTTL: true, masterRecordsTTL: 300, wantWarning: false},
		{name: "strict mismatch", ttl: 299, strictTTL: true, masterRecordsTTL: 300, wantWarning: true},
		{name: "non-strict within bound", ttl: 150, strictTTL: false, masterRecordsTTL: 300, wantWarning: false},
		{name: "non-strict zero ttl", ttl: 0, strictTTL: false, masterRecordsTTL: 300, wantWarning: true},
		{name: "non-strict exceeds bound", ttl: 301, strictTTL: false, masterRecordsTTL: 300, wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &dns.Msg{Answer: []dns.RR{&dns.A{
				Hdr: dns.RR_Header{Name: "m.example.com.", Rrtype: dns.TypeA, Ttl: tt.ttl},
				A:   netIP(),
			}}}

			result := classifySuccess("m.example.com", resp, true, tt.strictTTL, tt.masterRecordsTTL)

			if tt.wantWarning {
				assert.Equal(t, status.LookupWarning, result.Status)
				assert.NotEmpty(t, result.StatusMessages)
			} else {
				assert.Empty(t, result.StatusMessages)
			}
			assert.Len(t, result.Addresses, 1)
		})
	}
}

func TestClassifySuccessNonMasterRecordIgnoresTTL(t *testing.T) {
	resp := &dns.Msg{Answer: []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "a.example.com.", Rrtype: dns.TypeA, Ttl: 5},
		A:   netIP(),
	}}}

	result := classifySuccess("a.example.com", resp, false, false, 300)
	assert.Empty(t, result.StatusMessages)
	assert.Len(t, result.Addresses, 1)
}

func TestClassifySuccessNoRecords(t *testing.T) {
	result := classifySuccess("missing.example.com", &dns.Msg{}, false, false, 300)
	assert.Empty(t, result.Addresses)
}

func netIP() []byte { return []byte{10, 0, 0, 1} }
