// File: bridge/ids.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import "strconv"

// Direction tells which side implements an entry.
type Direction uint8

const (
	// HostToGuest entries are implemented by the guest compiler.
	HostToGuest Direction = iota
	// GuestToHost entries are implemented by the host and reached
	// through proxies.
	GuestToHost
)

func (d Direction) String() string {
	if d == HostToGuest {
		return "host-to-guest"
	}
	return "guest-to-host"
}

// Id is a stable dispatch identifier.
type Id int

const (
	// Host to guest.
	InitializeRuntime Id = iota
	GetInitialOptions
	NewCompiler
	InitializeCompiler
	GetCompilerConfigurationName
	OpenCompilation
	DoCompile
	CloseCompilation
	Shutdown
	GetSuppliedString
	GetNodeCount
	GetNodeTypes
	GetTargetCodeSize
	GetTotalFrameSize

	// Guest to host.
	GetCompilableName
	CompilableToString
	GetCompilableAddress
	GetNonTrivialNodeCount
	GetCompilableAssumptions
	GetSourcePosition
	OnCompilationFailed
	IsCancelled
	IsLastTier
	GetLineNumber
	GetOffsetStart
	GetOffsetEnd
	GetSourceURI
	GetNodeDescription
	RegisterAssumptionDependency
	NotifyAssumptionDependency
	ReleaseHandle

	idCount
)

const firstGuestToHost = GetCompilableName

var idNames = [idCount]string{
	InitializeRuntime:            "InitializeRuntime",
	GetInitialOptions:            "GetInitialOptions",
	NewCompiler:                  "NewCompiler",
	InitializeCompiler:           "InitializeCompiler",
	GetCompilerConfigurationName: "GetCompilerConfigurationName",
	OpenCompilation:              "OpenCompilation",
	DoCompile:                    "DoCompile",
	CloseCompilation:             "CloseCompilation",
	Shutdown:                     "Shutdown",
	GetSuppliedString:            "GetSuppliedString",
	GetNodeCount:                 "GetNodeCount",
	GetNodeTypes:                 "GetNodeTypes",
	GetTargetCodeSize:            "GetTargetCodeSize",
	GetTotalFrameSize:            "GetTotalFrameSize",
	GetCompilableName:            "GetCompilableName",
	CompilableToString:           "CompilableToString",
	GetCompilableAddress:         "GetCompilableAddress",
	GetNonTrivialNodeCount:       "GetNonTrivialNodeCount",
	GetCompilableAssumptions:     "GetCompilableAssumptions",
	GetSourcePosition:            "GetSourcePosition",
	OnCompilationFailed:          "OnCompilationFailed",
	IsCancelled:                  "IsCancelled",
	IsLastTier:                   "IsLastTier",
	GetLineNumber:                "GetLineNumber",
	GetOffsetStart:               "GetOffsetStart",
	GetOffsetEnd:                 "GetOffsetEnd",
	GetSourceURI:                 "GetSourceURI",
	GetNodeDescription:           "GetNodeDescription",
	RegisterAssumptionDependency: "RegisterAssumptionDependency",
	NotifyAssumptionDependency:   "NotifyAssumptionDependency",
	ReleaseHandle:                "ReleaseHandle",
}

var idsByName = func() map[string]Id {
	m := make(map[string]Id, idCount)
	for i, n := range idNames {
		m[n] = Id(i)
	}
	return m
}()

func (id Id) String() string {
	if id >= 0 && id < idCount {
		return idNames[id]
	}
	return "Id(" + strconv.Itoa(int(id)) + ")"
}

func (id Id) Valid() bool { return id >= 0 && id < idCount }

func (id Id) Direction() Direction {
	if id >= firstGuestToHost {
		return GuestToHost
	}
	return HostToGuest
}

// IdByName maps a stable name back to its identifier.
func IdByName(name string) (Id, bool) {
	id, ok := idsByName[name]
	return id, ok
}

// Ids lists every identifier of a direction in declaration order.
func Ids(d Direction) []Id {
	var out []Id
	for id := Id(0); id < idCount; id++ {
		if id.Direction() == d {
			out = append(out, id)
		}
	}
	return out
}
