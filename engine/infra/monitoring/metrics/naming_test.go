package metrics

import "testing"

func TestMetricName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "adds prefix", input: "requests_total", expected: "vachanamrut_requests_total"},
		{name: "keeps prefixed", input: "vachanamrut_custom_metric", expected: "vachanamrut_custom_metric"},
		{name: "blank returns prefix", input: "", expected: "vachanamrut_"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MetricName(tt.input); got != tt.expected {
				t.Fatalf("MetricName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMetricNameWithSubsystem(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		subsystem  string
		metricName string
		expected   string
	}{
		{
			name:       "subsystem and name",
			subsystem:  "gateway",
			metricName: "requests_total",
			expected:   "vachanamrut_gateway_requests_total",
		},
		{
			name:       "subsystem trims underscore",
			subsystem:  "_pipeline_",
			metricName: "stage_total",
			expected:   "vachanamrut_pipeline_stage_total",
		},
		{name: "empty name", subsystem: "retrieval", metricName: "", expected: "vachanamrut_retrieval"},
		{
			name:       "already prefixed",
			subsystem:  "",
			metricName: "vachanamrut_existing_metric",
			expected:   "vachanamrut_existing_metric",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MetricNameWithSubsystem(tt.subsystem, tt.metricName); got != tt.expected {
				t.Fatalf("MetricNameWithSubsystem(%q, %q) = %q, want %q", tt.subsystem, tt.metricName, got, tt.expected)
			}
		})
	}
}
