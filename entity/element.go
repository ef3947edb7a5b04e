package entity

import (
	"fmt"
	"strings"

	"github.com/echoface/geo_store/geo"
)

const (
	KindUnknown ElementKind = iota
	KindNode
	KindWay
	KindArea
	KindRelation
)

type (
	ElementKind uint8

	Tag struct {
		Key   string `json:"k"`
		Value string `json:"v"`
	}

	// Element a persisted map entity, immutable once saved
	// Node: one coordinate; Way: polyline; Area: closed ring; Relation: Members only
	Element struct {
		ID          uint64              `json:"id"`
		Kind        ElementKind         `json:"kind"`
		Tags        []Tag               `json:"tags,omitempty"`
		Coordinates []geo.GeoCoordinate `json:"coords,omitempty"`
		Members     []*Element          `json:"members,omitempty"`
	}
)

func (k ElementKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindArea:
		return "area"
	case KindRelation:
		return "relation"
	}
	return "unknown"
}

func NewNode(id uint64, coordinate geo.GeoCoordinate, tags ...Tag) *Element {
	return &Element{ID: id, Kind: KindNode, Tags: tags, Coordinates: []geo.GeoCoordinate{coordinate}}
}

func NewWay(id uint64, coordinates []geo.GeoCoordinate, tags ...Tag) *Element {
	return &Element{ID: id, Kind: KindWay, Tags: tags, Coordinates: coordinates}
}

func NewArea(id uint64, coordinates []geo.GeoCoordinate, tags ...Tag) *Element {
	return &Element{ID: id, Kind: KindArea, Tags: tags, Coordinates: coordinates}
}

func NewRelation(id uint64, members []*Element, tags ...Tag) *Element {
	return &Element{ID: id, Kind: KindRelation, Tags: tags, Members: members}
}

func NewTag(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// TagValue returns value of first tag with key
func (e *Element) TagValue(key string) (string, bool) {
	for _, tag := range e.Tags {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// BoundingBox the extent of all coordinates including relation members
func (e *Element) BoundingBox() geo.BoundingBox {
	bbox := geo.EmptyBoundingBox()
	for _, c := range e.Coordinates {
		bbox = bbox.Expand(c)
	}
	for _, m := range e.Members {
		if mb := m.BoundingBox(); mb.IsValid() {
			bbox = bbox.Merge(mb)
		}
	}
	return bbox
}

func (e *Element) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%s#%d{", e.Kind, e.ID)
	for i, tag := range e.Tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(tag.Key)
		sb.WriteByte('=')
		sb.WriteString(tag.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}
