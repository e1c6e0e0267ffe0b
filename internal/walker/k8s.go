package walker

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nickelgen/nickelgen/internal/types"
)

// MetaV1Module is the module owning the apimachinery meta types.
const MetaV1Module = "io.k8s.apimachinery.pkg.apis.meta.v1"

// coreMetaTypes are the apimachinery meta types held by the authoritative
// v1 directory of the core package. Every generated package may reference
// them without declaring them.
var coreMetaTypes = map[string]struct{}{
	"ObjectMeta":               {},
	"ListMeta":                 {},
	"LabelSelector":            {},
	"LabelSelectorRequirement": {},
	"Time":                     {},
	"MicroTime":                {},
	"Duration":                 {},
	"Status":                   {},
	"StatusDetails":            {},
	"StatusCause":              {},
	"FieldsV1":                 {},
	"ManagedFieldsEntry":       {},
	"OwnerReference":           {},
	"Preconditions":            {},
	"DeleteOptions":            {},
	"ListOptions":              {},
	"GetOptions":               {},
	"WatchEvent":               {},
	"Condition":                {},
	"TypeMeta":                 {},
	"APIResource":              {},
	"APIResourceList":          {},
	"APIGroup":                 {},
	"APIGroupList":             {},
	"APIVersions":              {},
	"GroupVersionForDiscovery": {},
}

// unversionedKinds live in the reserved v0 bucket: they belong to no API
// version of their own.
var unversionedKinds = map[string]struct{}{
	"RawExtension": {},
	"IntOrString":  {},
}

// IsCoreMetaType reports whether kind is an apimachinery meta type.
func IsCoreMetaType(kind string) bool {
	_, ok := coreMetaTypes[kind]
	return ok
}

// IsUnversionedKind reports whether kind lives in the v0 bucket.
func IsUnversionedKind(kind string) bool {
	_, ok := unversionedKinds[kind]
	return ok
}

// IsK8sName reports whether name is a reverse-DNS Kubernetes definition
// name.
func IsK8sName(name string) bool {
	return strings.HasPrefix(name, "io.k8s.")
}

// ParseK8sName converts a swagger definition name such as
// "io.k8s.api.apps.v1.Deployment" into coordinates. Core and apimachinery
// definitions map to the k8s.io group; named API groups keep their
// ".k8s.io" suffix. Unversioned runtime and util helpers land in the v0
// bucket.
func ParseK8sName(name string) (TypeRef, error) {
	parts := strings.Split(name, ".")
	if len(parts) < 4 || parts[0] != "io" || parts[1] != "k8s" {
		return TypeRef{}, fmt.Errorf("not a kubernetes definition name: %q", name)
	}
	kind := parts[len(parts)-1]
	if slices.Contains(parts, "runtime") || slices.Contains(parts, "util") {
		return TypeRef{Group: "k8s.io", Version: UnversionedBucket, Kind: kind}, nil
	}

	version := parts[len(parts)-2]
	if !IsVersionSegment(version) {
		return TypeRef{Group: "k8s.io", Version: UnversionedBucket, Kind: kind}, nil
	}

	group := "k8s.io"
	switch parts[2] {
	case "apimachinery":
	case "api":
		if len(parts) >= 5 && parts[3] != "core" {
			group = parts[3] + ".k8s.io"
		}
	default:
		// kube-aggregator, apiextensions-apiserver and friends carry
		// their API group right before the version segment.
		group = parts[len(parts)-3] + ".k8s.io"
	}
	return TypeRef{Group: group, Version: version, Kind: kind}, nil
}

// K8sVersionDir maps a parsed Kubernetes reference onto the version
// directory it occupies inside the core package.
func K8sVersionDir(ref TypeRef) string {
	if ref.Version == "" {
		return UnversionedBucket
	}
	return ref.Version
}

// K8sRefType maps a "#/definitions/..." target onto its representation.
// Timestamps, durations and quantities are serialized strings on the wire;
// IntOrString keeps both shapes with a string preference; FieldsV1 is
// opaque. Everything else stays a reference for the import machinery.
func K8sRefType(target string) (types.Type, bool) {
	switch {
	case strings.HasSuffix(target, ".Time"),
		strings.HasSuffix(target, ".MicroTime"),
		strings.HasSuffix(target, ".Duration"),
		strings.HasSuffix(target, ".Quantity"):
		return types.String(), true
	case strings.HasSuffix(target, ".IntOrString"):
		return types.HintedUnionOf(types.PreferString, types.Integer(), types.String()), true
	case strings.HasSuffix(target, ".FieldsV1"):
		return types.Any(), true
	case IsK8sName(target):
		module, name := SplitFQN(target)
		return types.ModuleRef(name, module), true
	}
	return types.Type{}, false
}

// seedCoreDefinitions is the closure start set for core-package extraction
// from a Kubernetes swagger document. Reference discovery pulls in the
// transitive closure of everything these touch.
var seedCoreDefinitions = []string{
	"io.k8s.apimachinery.pkg.apis.meta.v1.APIGroup",
	"io.k8s.apimachinery.pkg.apis.meta.v1.APIGroupList",
	"io.k8s.apimachinery.pkg.apis.meta.v1.APIResource",
	"io.k8s.apimachinery.pkg.apis.meta.v1.APIResourceList",
	"io.k8s.apimachinery.pkg.apis.meta.v1.APIVersions",
	"io.k8s.apimachinery.pkg.apis.meta.v1.Condition",
	"io.k8s.apimachinery.pkg.apis.meta.v1.DeleteOptions",
	"io.k8s.apimachinery.pkg.apis.meta.v1.GroupVersionForDiscovery",
	"io.k8s.apimachinery.pkg.apis.meta.v1.LabelSelector",
	"io.k8s.apimachinery.pkg.apis.meta.v1.ListMeta",
	"io.k8s.apimachinery.pkg.apis.meta.v1.ManagedFieldsEntry",
	"io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta",
	"io.k8s.apimachinery.pkg.apis.meta.v1.OwnerReference",
	"io.k8s.apimachinery.pkg.apis.meta.v1.Preconditions",
	"io.k8s.apimachinery.pkg.apis.meta.v1.Status",
	"io.k8s.apimachinery.pkg.apis.meta.v1.StatusCause",
	"io.k8s.apimachinery.pkg.apis.meta.v1.StatusDetails",
	"io.k8s.apimachinery.pkg.apis.meta.v1.TypeMeta",
	"io.k8s.apimachinery.pkg.apis.meta.v1.WatchEvent",
	"io.k8s.apimachinery.pkg.runtime.RawExtension",
	"io.k8s.apimachinery.pkg.util.intstr.IntOrString",
	"io.k8s.api.core.v1.ConfigMap",
	"io.k8s.api.core.v1.Container",
	"io.k8s.api.core.v1.Namespace",
	"io.k8s.api.core.v1.Node",
	"io.k8s.api.core.v1.PersistentVolume",
	"io.k8s.api.core.v1.PersistentVolumeClaim",
	"io.k8s.api.core.v1.Pod",
	"io.k8s.api.core.v1.PodTemplateSpec",
	"io.k8s.api.core.v1.Secret",
	"io.k8s.api.core.v1.Service",
	"io.k8s.api.core.v1.ServiceAccount",
	"io.k8s.api.apps.v1.DaemonSet",
	"io.k8s.api.apps.v1.Deployment",
	"io.k8s.api.apps.v1.ReplicaSet",
	"io.k8s.api.apps.v1.StatefulSet",
	"io.k8s.api.batch.v1.CronJob",
	"io.k8s.api.batch.v1.Job",
	"io.k8s.api.networking.v1.Ingress",
	"io.k8s.api.networking.v1.NetworkPolicy",
	"io.k8s.api.rbac.v1.ClusterRole",
	"io.k8s.api.rbac.v1.ClusterRoleBinding",
	"io.k8s.api.rbac.v1.Role",
	"io.k8s.api.rbac.v1.RoleBinding",
	"io.k8s.api.storage.v1.StorageClass",
}

// CoreClosure walks the definitions map from the seed set, following every
// schema reference until the set is stable, and returns the sorted list of
// definition names to generate. Seeds missing from the document are
// skipped.
func CoreClosure(defs map[string]*Schema, seeds []string) []string {
	if seeds == nil {
		seeds = seedCoreDefinitions
	}
	seen := make(map[string]struct{})
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := defs[s]; ok {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				queue = append(queue, s)
			}
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, ref := range schemaRefs(defs[name]) {
			if _, ok := defs[ref]; !ok {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			queue = append(queue, ref)
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
