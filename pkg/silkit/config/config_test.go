package config

import "testing"

const sampleYAML = `
ParticipantName: "Test"
Middleware:
  RegistryUri: "silkit://localhost:8501"
  AcceptorUris:
    - "tcp://0.0.0.0:8502"
  ConnectAttempts: 5
  TcpNoDelay: true
  EnableDomainSockets: false
`

func TestRoundTrip_YAMLToJSONTwice(t *testing.T) {
	c, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}

	first, err := c.MarshalJSONDocument()
	if err != nil {
		t.Fatalf("MarshalJSONDocument: %v", err)
	}

	reparsed, err := ParseJSON(first)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}

	second, err := reparsed.MarshalJSONDocument()
	if err != nil {
		t.Fatalf("MarshalJSONDocument (2): %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("JSON forms differ:\n%s\nvs\n%s", first, second)
	}
}

func TestParseYAML_Defaults(t *testing.T) {
	c, err := ParseYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if c.ParticipantName != "Test" {
		t.Fatalf("ParticipantName = %q", c.ParticipantName)
	}
	if c.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("SchemaVersion = %d, want defaulted %d", c.SchemaVersion, CurrentSchemaVersion)
	}
	if !c.Middleware.TcpNoDelay {
		t.Fatalf("TcpNoDelay should be true")
	}
	if len(c.Middleware.AcceptorURIs) != 1 || c.Middleware.AcceptorURIs[0] != "tcp://0.0.0.0:8502" {
		t.Fatalf("AcceptorURIs = %v", c.Middleware.AcceptorURIs)
	}
}

func TestParseYAML_MissingName(t *testing.T) {
	_, err := ParseYAML([]byte("Middleware:\n  ConnectAttempts: 5\n"))
	if err == nil {
		t.Fatal("expected an error for missing ParticipantName")
	}
}

func TestParseRegistryURI(t *testing.T) {
	cases := []struct {
		raw     string
		network string
		address string
		sim     string
	}{
		{"silkit://localhost:8501", "tcp", "localhost:8501", DefaultSimulationName},
		{"silkit://localhost:8501/mysim", "tcp", "localhost:8501", "mysim"},
		{"tcp://localhost:8501", "tcp", "localhost:8501", DefaultSimulationName},
		{"local:///tmp/silkit-registry.sock", "unix", "/tmp/silkit-registry.sock", DefaultSimulationName},
	}
	for _, tc := range cases {
		addr, err := ParseRegistryURI(tc.raw)
		if err != nil {
			t.Fatalf("ParseRegistryURI(%q): %v", tc.raw, err)
		}
		if addr.Network != tc.network || addr.Address != tc.address || addr.SimulationName != tc.sim {
			t.Fatalf("ParseRegistryURI(%q) = %+v, want network=%s address=%s sim=%s",
				tc.raw, addr, tc.network, tc.address, tc.sim)
		}
	}
}
