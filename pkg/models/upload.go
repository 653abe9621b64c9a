package models

// Attribute is the name of an event or object attribute.
type Attribute string

// Qualifier qualifies the relation between an event and an object, or
// between two objects.
type Qualifier string

// UploadResponse describes the log the backend parsed and opens a session.
type UploadResponse struct {
	SessionKey                       string                                                 `json:"session_key"`
	EventTypes                       []EventType                                            `json:"event_types"`
	ObjectTypes                      []ObjectType                                           `json:"object_types"`
	EventTypeAttributes              map[EventType][]Attribute                              `json:"event_type_attributes"`
	EventTypeObjectTypes             map[EventType][]ObjectType                             `json:"event_type_object_types"`
	EventTypeObjectRelations         map[EventType]map[ObjectType][]Qualifier              `json:"event_type_object_relations"`
	EventTypeObjectToObjectRelations map[EventType]map[ObjectType]map[ObjectType][]Qualifier `json:"event_type_object_to_object_relations"`
	ObjectTypeAttributes             map[ObjectType][]Attribute                             `json:"object_type_attributes"`
	VariablePrefixes                 map[ObjectType]string                                  `json:"variable_prefixes"`
}

// RelatedObjectTypes returns the object types related to an event type.
func (u *UploadResponse) RelatedObjectTypes(eventType EventType) []ObjectType {
	if u == nil || u.EventTypeObjectTypes == nil {
		return nil
	}
	related := u.EventTypeObjectTypes[eventType]
	out := make([]ObjectType, len(related))
	copy(out, related)
	return out
}
