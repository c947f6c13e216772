package roleooc

// access levels used by the service
const (
	AccessLevelAnonymous  = 0
	AccessLevelStandard   = 1
	AccessLevelPrivileged = 2
	AccessLevelModerator  = 3
	AccessLevelAdmin      = 4
	AccessLevelSuperUser  = 5
)

type AccessParams struct {
	ObjectToAccess Record
	Viewer         Record
}

type AccessResult struct {
	CanSee  bool
	CanEdit bool
}

// AccessCheckFunc decides what a viewer may do with a record. The list
// controller consumes this and never implements authorization rules itself.
type AccessCheckFunc func(params AccessParams) AccessResult

// HasAccess is the default access check. Owners, listed users and members
// of listed teams see and edit; public records are visible to everyone;
// otherwise the viewer's access level is checked against the record's
// visibility threshold, and editing requires admin level.
func HasAccess(params AccessParams) AccessResult {
	object := params.ObjectToAccess
	viewer := params.Viewer

	if viewer == nil {
		viewer = Record{}
	}

	viewerId := viewer.ObjectId()
	viewerAccessLevel := intField(viewer, "accessLevel", AccessLevelAnonymous)

	if viewerAccessLevel >= AccessLevelAdmin {
		return AccessResult{CanSee: true, CanEdit: true}
	}

	isOwner := viewerId != "" &&
		(equalValues(object["ownerId"], viewerId) ||
			equalValues(object["ownerAliasId"], viewerId) ||
			listContains(viewer["aliases"], object["ownerAliasId"]))
	if isOwner {
		return AccessResult{CanSee: true, CanEdit: true}
	}

	isListed := listContains(object["userIds"], viewerId) ||
		intersects(object["teamIds"], viewer["partOfTeams"])
	if isListed {
		canEdit := listContains(object["adminIds"], viewerId)
		return AccessResult{CanSee: true, CanEdit: canEdit}
	}

	if isPublic, _ := object["isPublic"].(bool); isPublic {
		return AccessResult{CanSee: true}
	}

	visibility := intField(object, "visibility", AccessLevelStandard)
	if viewerAccessLevel >= visibility {
		return AccessResult{CanSee: true}
	}

	return AccessResult{}
}

func intField(record Record, param string, fallback int) int {
	value, ok := record[param]
	if !ok {
		return fallback
	}
	num, ok := numericValue(value)
	if !ok {
		return fallback
	}
	return int(num)
}

func intersects(aValue any, bValue any) bool {
	bList, ok := bValue.([]any)
	if !ok {
		return false
	}
	for _, member := range bList {
		if listContains(aValue, member) {
			return true
		}
	}
	return false
}
