package storage

import "fmt"

// Object store layout. Chapters and acts are numbered from 1.

// ChapterDir is the parent location for everything belonging to a chapter.
func ChapterDir(collectionID int) string {
	return fmt.Sprintf("chapter_%02d", collectionID)
}

// UnitObjectName is the mirrored text of one act.
func UnitObjectName(unitIndex int) string {
	return fmt.Sprintf("act_%d.txt", unitIndex)
}

// CollectionObjectName is the mirrored combined chapter text.
func CollectionObjectName(collectionID int) string {
	return fmt.Sprintf("chapter_%02d_full.txt", collectionID)
}

// ImageDir is the parent location for one act's rendered scenes.
func ImageDir(collectionID, unitIndex int) string {
	return fmt.Sprintf("%s/images/act_%d", ChapterDir(collectionID), unitIndex)
}

// ImageObjectName names a rendered scene.
func ImageObjectName(itemIndex int, ext string) string {
	return fmt.Sprintf("scene_%02d%s", itemIndex, ext)
}
