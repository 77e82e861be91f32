package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRelationshipType(t *testing.T) {
	assert.True(t, ValidRelationshipType("supports"))
	assert.True(t, ValidRelationshipType("contradicts"))
	assert.True(t, ValidRelationshipType("neutral"))

	assert.False(t, ValidRelationshipType("Supports"))
	assert.False(t, ValidRelationshipType("entails"))
	assert.False(t, ValidRelationshipType(""))
}

func TestRelationship_Endpoints(t *testing.T) {
	rel := Relationship{SourceID: "a", TargetID: "b"}

	assert.True(t, rel.Touches("a"))
	assert.True(t, rel.Touches("b"))
	assert.False(t, rel.Touches("c"))

	assert.Equal(t, "b", rel.Other("a"))
	assert.Equal(t, "a", rel.Other("b"))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobDone.Terminal())
	assert.True(t, JobFailed.Terminal())
}
