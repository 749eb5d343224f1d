package compute

import (
	"fmt"
	"maps"
	"math"

	"github.com/gomlx/gocompute/backend"
)

// Feature is an optional capability of a device, gated by the device version.
type Feature int

const (
	// FeatureRectTransfers enables the rectangular buffer read, write and copy.
	FeatureRectTransfers Feature = iota
	// FeatureFillBuffer enables EnqueueFillBuffer.
	FeatureFillBuffer
	// FeatureFillImage selects the native image fill. Without it, EnqueueFillImage walks the mapped image.
	FeatureFillImage
	// FeatureMigrate enables EnqueueMigrateMemObjects.
	FeatureMigrate
	// FeatureWaitListSync enables barriers and markers with wait lists. Without it, EnqueueBarrier and
	// EnqueueMarker use the legacy entry points.
	FeatureWaitListSync
	// FeatureSVM enables the shared virtual memory operations.
	FeatureSVM
	// FeatureQueueProperties selects queue creation with a property list.
	FeatureQueueProperties
	// FeatureTaskAsNDRange dispatches EnqueueTask as a single work-item NDRange.
	FeatureTaskAsNDRange
)

var featureNames = map[Feature]string{
	FeatureRectTransfers:   "RectTransfers",
	FeatureFillBuffer:      "FillBuffer",
	FeatureFillImage:       "FillImage",
	FeatureMigrate:         "Migrate",
	FeatureWaitListSync:    "WaitListSync",
	FeatureSVM:             "SVM",
	FeatureQueueProperties: "QueueProperties",
	FeatureTaskAsNDRange:   "TaskAsNDRange",
}

func (f Feature) String() string {
	if name, found := featureNames[f]; found {
		return name
	}
	return fmt.Sprintf("Feature(%d)", int(f))
}

// VersionNever is a minimum version no device reaches: it disables a feature in a FeatureTable.
const VersionNever = backend.Version(math.MaxInt32)

// FeatureTable maps each Feature to the minimum device version that supports it.
//
// Backends that are not OpenCL drivers have different capability boundaries, so a queue can be created with its
// own table, see QueueConfig.WithFeatureTable.
type FeatureTable map[Feature]backend.Version

// DefaultFeatureTable returns the OpenCL version requirements of each feature.
func DefaultFeatureTable() FeatureTable {
	return FeatureTable{
		FeatureRectTransfers:   backend.Version1_1,
		FeatureFillBuffer:      backend.Version1_2,
		FeatureFillImage:       backend.Version1_2,
		FeatureMigrate:         backend.Version1_2,
		FeatureWaitListSync:    backend.Version1_2,
		FeatureSVM:             backend.Version2_0,
		FeatureQueueProperties: backend.Version2_0,
		FeatureTaskAsNDRange:   backend.Version2_0,
	}
}

// Clone returns a copy of the table, to be modified. The copy of a nil table is an empty table.
func (t FeatureTable) Clone() FeatureTable {
	if t == nil {
		return FeatureTable{}
	}
	return maps.Clone(t)
}

// With returns a copy of the table with the feature's minimum version set to v.
func (t FeatureTable) With(f Feature, v backend.Version) FeatureTable {
	clone := t.Clone()
	clone[f] = v
	return clone
}

// Disable returns a copy of the table with the feature disabled.
func (t FeatureTable) Disable(f Feature) FeatureTable {
	return t.With(f, VersionNever)
}

// MinVersion returns the minimum version of the feature. Features missing in the table are disabled.
func (t FeatureTable) MinVersion(f Feature) backend.Version {
	v, found := t[f]
	if !found {
		return VersionNever
	}
	return v
}

// Supports returns whether a device of version v supports the feature.
func (t FeatureTable) Supports(f Feature, v backend.Version) bool {
	return v >= t.MinVersion(f)
}
