package bitmapidx

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

type (
	// PostingList a bit-set over shard orders
	PostingList struct {
		*roaring.Bitmap
	}
)

var bitmapPool = sync.Pool{
	New: func() interface{} {
		return roaring.New()
	},
}

func NewPostingList() PostingList {
	return PostingList{
		Bitmap: bitmapPool.Get().(*roaring.Bitmap),
	}
}

func ReleasePostingList(list PostingList) {
	if list.Bitmap == nil {
		return
	}
	if !list.IsEmpty() {
		list.Clear()
	}
	bitmapPool.Put(list.Bitmap)
}
