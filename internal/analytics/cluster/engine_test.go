package cluster

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/enrolytics/enrolytics/internal/models"
)

func makeVector(region, period string, features map[string]float64) models.FeatureVector {
	return models.FeatureVector{Region: region, Period: period, Features: features}
}

func assignmentFor(t *testing.T, assignments []models.ClusterAssignment, region string) models.ClusterAssignment {
	t.Helper()
	for _, a := range assignments {
		if a.Region == region {
			return a
		}
	}
	t.Fatalf("No assignment for %s", region)
	return models.ClusterAssignment{}
}

func TestCluster_Reproducible(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("Assam", "2023-01", map[string]float64{"f1": 1.0, "f2": 2.0}),
		makeVector("Bihar", "2023-01", map[string]float64{"f1": 1.2, "f2": 2.1}),
		makeVector("Delhi", "2023-01", map[string]float64{"f1": 9.0, "f2": 8.5}),
		makeVector("Goa", "2023-01", map[string]float64{"f1": 9.3, "f2": 8.8}),
		makeVector("Kerala", "2023-01", map[string]float64{"f1": 5.1, "f2": 4.9}),
		makeVector("Odisha", "2023-01", map[string]float64{"f1": 5.0, "f2": 5.2}),
	}

	first, err := NewEngine(Config{K: KAuto, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	second, err := NewEngine(Config{K: KAuto, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Same table and seed produced different assignments")
	}
}

func TestCluster_IdenticalRegionsSameCluster(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("A", "2023-01", map[string]float64{"f1": 0, "f2": 0}),
		makeVector("B", "2023-01", map[string]float64{"f1": 0, "f2": 0}),
		makeVector("C", "2023-01", map[string]float64{"f1": 10, "f2": 10}),
		makeVector("D", "2023-01", map[string]float64{"f1": 10, "f2": 10}),
	}

	assignments, err := NewEngine(Config{K: 2, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}

	a := assignmentFor(t, assignments, "A")
	b := assignmentFor(t, assignments, "B")
	c := assignmentFor(t, assignments, "C")
	d := assignmentFor(t, assignments, "D")

	if a.Cluster != b.Cluster {
		t.Errorf("Identical regions A and B split across clusters %d and %d", a.Cluster, b.Cluster)
	}
	if c.Cluster != d.Cluster {
		t.Errorf("Identical regions C and D split across clusters %d and %d", c.Cluster, d.Cluster)
	}
	if a.Cluster == c.Cluster {
		t.Error("Distinct groups collapsed into one cluster")
	}

	for _, assignment := range assignments {
		if assignment.Distance > 1e-9 {
			t.Errorf("Region %s: expected centroid distance ~0, got %f", assignment.Region, assignment.Distance)
		}
	}
}

func TestCluster_MissingFeatureExcluded(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("A", "2023-01", map[string]float64{"f1": 0, "f2": 0}),
		makeVector("B", "2023-01", map[string]float64{"f1": 0, "f2": 0}),
		makeVector("C", "2023-01", map[string]float64{"f1": 10, "f2": 10}),
		makeVector("E", "2023-01", map[string]float64{"f1": 5}), // f2 never observed
	}

	assignments, err := NewEngine(Config{K: 2, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if len(assignments) != 4 {
		t.Fatalf("Expected 4 assignments, got %d", len(assignments))
	}

	e := assignmentFor(t, assignments, "E")
	if e.Clustered() {
		t.Errorf("Region with a missing feature was clustered into %d", e.Cluster)
	}
	if e.Cluster != models.ClusterUnclustered {
		t.Errorf("Expected cluster %d, got %d", models.ClusterUnclustered, e.Cluster)
	}
	if len(e.MissingFeatures) != 1 || e.MissingFeatures[0] != "f2" {
		t.Errorf("Expected missing features [f2], got %v", e.MissingFeatures)
	}

	for _, region := range []string{"A", "B", "C"} {
		if !assignmentFor(t, assignments, region).Clustered() {
			t.Errorf("Region %s with complete features was not clustered", region)
		}
	}
}

func TestCluster_ZeroVarianceFeature(t *testing.T) {
	// f2 is constant across regions: it standardizes to zero everywhere
	// and must not fault or produce NaN distances.
	vectors := []models.FeatureVector{
		makeVector("A", "2023-01", map[string]float64{"f1": 1, "f2": 7}),
		makeVector("B", "2023-01", map[string]float64{"f1": 2, "f2": 7}),
		makeVector("C", "2023-01", map[string]float64{"f1": 30, "f2": 7}),
		makeVector("D", "2023-01", map[string]float64{"f1": 31, "f2": 7}),
	}

	assignments, err := NewEngine(Config{K: 2, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}

	for _, a := range assignments {
		if math.IsNaN(a.Distance) || math.IsInf(a.Distance, 0) {
			t.Errorf("Region %s: distance not finite: %f", a.Region, a.Distance)
		}
	}

	// Separation still works on the remaining informative feature.
	if assignmentFor(t, assignments, "A").Cluster != assignmentFor(t, assignments, "B").Cluster {
		t.Error("Close regions A and B split despite the constant feature")
	}
	if assignmentFor(t, assignments, "A").Cluster == assignmentFor(t, assignments, "C").Cluster {
		t.Error("Far regions A and C merged despite the constant feature")
	}
}

func TestCluster_KCappedAtRegionCount(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("A", "2023-01", map[string]float64{"f1": 1}),
		makeVector("B", "2023-01", map[string]float64{"f1": 9}),
	}

	assignments, err := NewEngine(Config{K: 5, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("Expected 2 assignments, got %d", len(assignments))
	}
	for _, a := range assignments {
		if !a.Clustered() {
			t.Errorf("Region %s not clustered", a.Region)
		}
		if a.Cluster < 0 || a.Cluster > 1 {
			t.Errorf("Region %s: cluster id %d out of range for capped k", a.Region, a.Cluster)
		}
	}
}

func TestCluster_AutoKSelectsSeparatedGroups(t *testing.T) {
	// Three tight groups far apart: silhouette should recover k=3
	var vectors []models.FeatureVector
	for g, base := range []float64{0, 100, 200} {
		for i := 0; i < 3; i++ {
			region := fmt.Sprintf("G%d-%d", g, i)
			vectors = append(vectors, makeVector(region, "2023-01", map[string]float64{"f1": base + float64(i)}))
		}
	}

	assignments, err := NewEngine(Config{K: KAuto, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}

	labels := make(map[string]int)
	for _, a := range assignments {
		labels[a.Region] = a.Cluster
	}

	distinct := make(map[int]struct{})
	for g := 0; g < 3; g++ {
		first := labels[fmt.Sprintf("G%d-0", g)]
		distinct[first] = struct{}{}
		for i := 1; i < 3; i++ {
			if labels[fmt.Sprintf("G%d-%d", g, i)] != first {
				t.Errorf("Group %d split across clusters", g)
			}
		}
	}
	if len(distinct) != 3 {
		t.Errorf("Expected 3 clusters for 3 separated groups, got %d", len(distinct))
	}
}

func TestCluster_WindowSelection(t *testing.T) {
	// A and B have the same full-window mean but opposite latest values.
	vectors := []models.FeatureVector{
		makeVector("A", "2023-01", map[string]float64{"f1": 0}),
		makeVector("A", "2023-02", map[string]float64{"f1": 10}),
		makeVector("B", "2023-01", map[string]float64{"f1": 10}),
		makeVector("B", "2023-02", map[string]float64{"f1": 0}),
	}

	full, err := NewEngine(Config{K: 2, Seed: 42, Window: WindowFull}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if assignmentFor(t, full, "A").Cluster != assignmentFor(t, full, "B").Cluster {
		t.Error("Full window: regions with equal means should share a cluster")
	}

	latest, err := NewEngine(Config{K: 2, Seed: 42, Window: WindowLatest}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if assignmentFor(t, latest, "A").Cluster == assignmentFor(t, latest, "B").Cluster {
		t.Error("Latest window: regions with opposite latest values should separate")
	}
}

func TestCluster_OrderedByRegion(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("Delhi", "2023-01", map[string]float64{"f1": 1, "f2": 1}),
		makeVector("Assam", "2023-01", map[string]float64{"f1": 2, "f2": 2}),
		makeVector("Kerala", "2023-01", map[string]float64{"f1": 3}), // excluded
		makeVector("Bihar", "2023-01", map[string]float64{"f1": 9, "f2": 9}),
	}

	assignments, err := NewEngine(Config{K: 2, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}

	want := []string{"Assam", "Bihar", "Delhi", "Kerala"}
	if len(assignments) != len(want) {
		t.Fatalf("Expected %d assignments, got %d", len(want), len(assignments))
	}
	for i, region := range want {
		if assignments[i].Region != region {
			t.Errorf("Position %d: expected %s, got %s", i, region, assignments[i].Region)
		}
	}
}

func TestCluster_SingleRegion(t *testing.T) {
	vectors := []models.FeatureVector{
		makeVector("Goa", "2023-01", map[string]float64{"f1": 5}),
	}

	assignments, err := NewEngine(Config{K: KAuto, Seed: 42}).Cluster(context.Background(), vectors)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("Expected 1 assignment, got %d", len(assignments))
	}
	if !assignments[0].Clustered() {
		t.Error("A single complete region should still be assigned")
	}
	if assignments[0].Distance > 1e-9 {
		t.Errorf("Single region should sit on its centroid, distance %f", assignments[0].Distance)
	}
}

func TestCluster_EmptyInput(t *testing.T) {
	assignments, err := NewEngine(Config{}).Cluster(context.Background(), nil)
	if err != nil {
		t.Fatalf("Cluster() error: %v", err)
	}
	if len(assignments) != 0 {
		t.Errorf("Expected no assignments, got %d", len(assignments))
	}
}
