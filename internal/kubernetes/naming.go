package kubernetes

import (
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// Labels carried by every pod the launcher creates
const (
	// LabelJobPodKey marks launcher-managed pods
	LabelJobPodKey = "airbyte"
	// LabelJobPodValue is the value of LabelJobPodKey
	LabelJobPodValue = "job-pod"

	// LabelAutoID is the ledger's per-workload correlation key
	LabelAutoID = "auto-id"
	// LabelWorkloadID is the ledger id of the workload
	LabelWorkloadID = "workload-id"
	// LabelWorkloadType is the workload type
	LabelWorkloadType = "workload-type"
	// LabelMutexKey serializes workloads of the same connection
	LabelMutexKey = "mutex-key"
	// LabelDeleteBy is set on runaway pods to the unix second after which they may be deleted
	LabelDeleteBy = "delete-by"
)

// JobPodSelector selects every launcher-managed pod
var JobPodSelector = fmt.Sprintf("%s=%s", LabelJobPodKey, LabelJobPodValue)

// DeleteBySelector selects pods marked for deletion
var DeleteBySelector = LabelDeleteBy

const (
	// maxPodNameLength keeps generated names usable as hostnames
	maxPodNameLength = validation.DNS1123LabelMaxLength
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// GeneratePodName builds a DNS-1123 label of the form <kind>-<workloadID>.
// Characters outside [a-z0-9-] are replaced and the result is truncated to 63 characters.
//
// Returns an error if kind or workloadID is empty, or nothing valid remains after cleanup.
func GeneratePodName(kind, workloadID string) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("pod kind cannot be empty")
	}
	if workloadID == "" {
		return "", fmt.Errorf("workload id cannot be empty")
	}

	name := invalidNameChars.ReplaceAllString(strings.ToLower(kind+"-"+workloadID), "-")
	if len(name) > maxPodNameLength {
		name = name[:maxPodNameLength]
	}
	name = strings.Trim(name, "-")

	if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
		return "", fmt.Errorf("generated pod name %q is invalid: %s", name, strings.Join(errs, ", "))
	}
	return name, nil
}

var invalidLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeLabelValue turns v into a valid label value, dropping what cannot be kept
func SanitizeLabelValue(v string) string {
	v = invalidLabelChars.ReplaceAllString(v, "_")
	if len(v) > validation.LabelValueMaxLength {
		v = v[:validation.LabelValueMaxLength]
	}
	v = strings.Trim(v, "._-")
	if len(validation.IsValidLabelValue(v)) > 0 {
		return ""
	}
	return v
}
