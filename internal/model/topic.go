package model

import (
	"fmt"
)

// TopicKind identifies the category of a pub-sub topic.
type TopicKind int

const (
	// TopicUserDrops tracks drop progress and claims for the user.
	TopicUserDrops TopicKind = iota
	// TopicUserNotifications tracks on-site notifications for the user.
	TopicUserNotifications
	// TopicChannelStreamState tracks stream up/down and viewer count.
	TopicChannelStreamState
	// TopicChannelStreamUpdate tracks broadcast title and game changes.
	TopicChannelStreamUpdate
)

var topicNames = map[TopicKind]string{
	TopicUserDrops:           "user-drop-events",
	TopicUserNotifications:   "onsite-notifications",
	TopicChannelStreamState:  "video-playback-by-id",
	TopicChannelStreamUpdate: "broadcast-settings-update",
}

// String returns the platform topic string prefix for this kind.
func (k TopicKind) String() string {
	if name, ok := topicNames[k]; ok {
		return name
	}
	return "unknown"
}

// UserScoped reports whether the kind targets the authenticated user rather
// than a channel.
func (k TopicKind) UserScoped() bool {
	return k == TopicUserDrops || k == TopicUserNotifications
}

// Topic represents a pub-sub subscription target. TargetID is the user ID for
// user-scoped kinds and the channel ID otherwise.
type Topic struct {
	Kind     TopicKind `json:"kind"`
	TargetID string    `json:"target_id"`
}

// NewTopic creates a Topic for the given kind and target.
func NewTopic(kind TopicKind, targetID string) Topic {
	return Topic{Kind: kind, TargetID: targetID}
}

// String returns the full topic string in the format "topic_name.id".
func (t Topic) String() string {
	return fmt.Sprintf("%s.%s", t.Kind, t.TargetID)
}

// ParseTopic splits a full topic string back into a Topic. Returns false for
// unrecognized topic names.
func ParseTopic(full string) (Topic, bool) {
	name, id := splitTopic(full)
	for kind, n := range topicNames {
		if n == name {
			return Topic{Kind: kind, TargetID: id}, true
		}
	}
	return Topic{}, false
}

func splitTopic(topicFull string) (string, string) {
	for i := len(topicFull) - 1; i >= 0; i-- {
		if topicFull[i] == '.' {
			return topicFull[:i], topicFull[i+1:]
		}
	}
	return topicFull, ""
}
