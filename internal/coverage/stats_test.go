package coverage

import (
	"math"
	"testing"
)

func TestCoveragePercentage(t *testing.T) {
	cases := []struct {
		name                       string
		total, driven, undriveable float64
		want                       float64
	}{
		{"empty area", 0, 0, 0, 0},
		{"nothing driven", 30, 0, 0, 0},
		{"one of three equal segments driven", 30, 10, 0, 33.3333},
		{"undriveable shrinks the denominator", 30, 10, 10, 50},
		{"everything driveable driven", 30, 20, 10, 100},
		{"all undriveable", 30, 0, 30, 0},
		{"float drift above 100 clamps", 30, 30.0001, 0, 100},
		{"negative driven clamps to zero", 30, -1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CoveragePercentage(tc.total, tc.driven, tc.undriveable)
			if math.Abs(got-tc.want) > 0.001 {
				t.Errorf("CoveragePercentage(%v, %v, %v) = %v, want %v",
					tc.total, tc.driven, tc.undriveable, got, tc.want)
			}
		})
	}
}

func TestMarkDelta(t *testing.T) {
	const length = 0.25

	cases := []struct {
		name       string
		prev, next string
		want       StatsDelta
	}{
		{"no change", SegmentDriven, SegmentDriven, StatsDelta{}},
		{
			"undriven to undriveable",
			SegmentUndriven, SegmentUndriveable,
			StatsDelta{UndriveableSegments: 1, UndriveableLengthMiles: length},
		},
		{
			"driven to undriveable",
			SegmentDriven, SegmentUndriveable,
			StatsDelta{
				DrivenSegments: -1, DrivenLengthMiles: -length,
				UndriveableSegments: 1, UndriveableLengthMiles: length,
			},
		},
		{
			"undriveable back to undriven",
			SegmentUndriveable, SegmentUndriven,
			StatsDelta{UndriveableSegments: -1, UndriveableLengthMiles: -length},
		},
		{
			"driven reset to undriven",
			SegmentDriven, SegmentUndriven,
			StatsDelta{DrivenSegments: -1, DrivenLengthMiles: -length},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := markDelta(tc.prev, tc.next, length); got != tc.want {
				t.Errorf("markDelta(%s, %s) = %+v, want %+v", tc.prev, tc.next, got, tc.want)
			}
		})
	}
}
