package address_test

import (
	"strings"
	"testing"

	"github.com/inbucket/inbound/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		input    string
		name     string
		spec     string
		username string
		domain   string
		address  string
	}{
		{
			input:    `"Sender, Inc." <sender@example.com>`,
			name:     "Sender, Inc.",
			spec:     "sender@example.com",
			username: "sender",
			domain:   "example.com",
			address:  `"Sender, Inc." <sender@example.com>`,
		},
		{
			input:    "First To <to1@example.com>",
			name:     "First To",
			spec:     "to1@example.com",
			username: "to1",
			domain:   "example.com",
			address:  "First To <to1@example.com>",
		},
		{
			input:    "cc2@example.com",
			spec:     "cc2@example.com",
			username: "cc2",
			domain:   "example.com",
			address:  "cc2@example.com",
		},
		{
			input:    "=?utf-8?q?J=C3=B6rg?= <jorg@example.de>",
			name:     "Jörg",
			spec:     "jorg@example.de",
			username: "jorg",
			domain:   "example.de",
			address:  "Jörg <jorg@example.de>",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := address.Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.name, got.DisplayName)
			assert.Equal(t, tc.spec, got.AddrSpec)
			assert.Equal(t, tc.username, got.Username())
			assert.Equal(t, tc.domain, got.Domain())
			assert.Equal(t, tc.address, got.Address())
			assert.Equal(t, tc.address, got.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "not an address", "<unterminated@example.com"} {
		t.Run(input, func(t *testing.T) {
			_, err := address.Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestParseList(t *testing.T) {
	got, err := address.ParseList("First To <to1@example.com>, to2@example.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, address.Value{DisplayName: "First To", AddrSpec: "to1@example.com"}, got[0])
	assert.Equal(t, address.Value{AddrSpec: "to2@example.com"}, got[1])

	got, err = address.ParseList("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = address.ParseList("to1@example.com, @@")
	assert.Error(t, err)
}

func TestParseListLenient(t *testing.T) {
	got := address.ParseListLenient(`"Last, First" <a@example.com>, garbage, b@example.com`)
	require.Len(t, got, 2)
	assert.Equal(t, "Last, First", got[0].DisplayName)
	assert.Equal(t, "a@example.com", got[0].AddrSpec)
	assert.Equal(t, "b@example.com", got[1].AddrSpec)

	assert.Empty(t, address.ParseListLenient(""))
}

func TestFormatList(t *testing.T) {
	vals := []address.Value{
		{DisplayName: "Sender, Inc.", AddrSpec: "sender@example.com"},
		{AddrSpec: "plain@example.com"},
		{DisplayName: `Say "hi"`, AddrSpec: "quote@example.com"},
	}
	want := `"Sender, Inc." <sender@example.com>, plain@example.com, "Say \"hi\"" <quote@example.com>`
	assert.Equal(t, want, address.FormatList(vals))
}

func TestAddressQuotesLocalPart(t *testing.T) {
	v := address.Value{AddrSpec: "first last@example.com"}
	assert.Equal(t, `"first last"@example.com`, v.Address())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		spec string
		ok   bool
	}{
		{"user@example.com", true},
		{"user@[192.168.1.1]", true},
		{"user@localhost", true},
		{"user@", false},
		{"@example.com", false},
		{"user@exa..mple.com", false},
		{"user", false},
	}
	for _, tc := range testCases {
		t.Run(tc.spec, func(t *testing.T) {
			err := address.Validate(address.Value{AddrSpec: tc.spec})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateDomain(t *testing.T) {
	testTable := []struct {
		input  string
		expect bool
		msg    string
	}{
		{"", false, "Empty domain is not valid"},
		{"hostname", true, "Just a hostname is valid"},
		{"github.com", true, "Two labels should be just fine"},
		{"my-domain.com", true, "Hyphen is allowed mid-label"},
		{"_domainkey.foo.com", true, "Underscores are allowed"},
		{"bar.com.", true, "Must be able to end with a dot"},
		{"ABC.6DBS.com", true, "Mixed case is OK"},
		{"mail.123.com", true, "Number only label valid"},
		{"123.com", true, "Number only label valid"},
		{"bücher.example", true, "Internationalized label valid"},
		{"google..com", false, "Double dot not valid"},
		{".foo.com", false, "Cannot start with a dot"},
		{"google\r.com", false, "Special chars not allowed"},
		{"foo.-bar.com", false, "Label cannot start with hyphen"},
		{"foo-.bar.com", false, "Label cannot end with hyphen"},
		{strings.Repeat("a", 256), false, "Max domain length is 255"},
		{strings.Repeat("a", 63) + ".com", true, "Should allow 63 char domain label"},
		{strings.Repeat("a", 64) + ".com", false, "Max domain label length is 63"},
	}
	for _, tt := range testTable {
		if address.ValidateDomainPart(tt.input) != tt.expect {
			t.Errorf("Expected %v for %q: %s", tt.expect, tt.input, tt.msg)
		}
	}
}
