package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/echoface/geo_store"
	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/util"
)

func main() {
	dir, err := os.MkdirTemp("", "geo_store_usage")
	util.PanicIfErr(err, "create data dir fail")
	defer os.RemoveAll(dir)

	settings := geo_store.DefaultSettings()
	settings.DataPath = dir
	settings.CacheCapacity = 4
	if len(os.Args) > 1 {
		settings, err = geo_store.LoadSettings(os.Args[1])
		util.PanicIfErr(err, "load settings fail")
	}

	store, err := geo_store.NewElementStore(settings)
	util.PanicIfErr(err, "open store fail")
	defer store.Close()

	// 上海 陆家嘴附近
	center := geo.NewCoordinate(31.2397, 121.4998)
	elements := []*entity.Element{
		entity.NewNode(1, center, entity.NewTag("amenity", "cafe"), entity.NewTag("name", "corner")),
		entity.NewNode(2, geo.NewCoordinate(31.2401, 121.5003), entity.NewTag("amenity", "restaurant")),
		entity.NewNode(3, geo.NewCoordinate(31.2392, 121.4990), entity.NewTag("shop", "bakery")),
		entity.NewWay(4, []geo.GeoCoordinate{
			geo.NewCoordinate(31.2380, 121.4980),
			geo.NewCoordinate(31.2410, 121.5010),
		}, entity.NewTag("highway", "primary")),
	}
	for lod := 12; lod <= 14; lod++ {
		for _, e := range elements {
			qk := geo.QuadKeyForCoordinate(e.BoundingBox().Center(), lod)
			util.PanicIfErr(store.Save(e, qk), "save element:%d fail", e.ID)
		}
	}

	qk := geo.QuadKeyForCoordinate(center, 14)
	fmt.Println("shard:", qk, "has data:", store.HasData(qk))

	_ = store.SearchQuadKey(context.Background(), qk, geo_store.VisitorFunc(func(e *entity.Element) error {
		fmt.Println("scan:", e)
		return nil
	}))

	collector := geo_store.NewElementCollector()
	lods := geo.NewLodRange(12, 14)
	err = store.Search(context.Background(), "shop", "amenity", "", qk.BoundingBox(), lods, collector)
	util.PanicIfErr(err, "search fail")
	fmt.Println("amenity but not shop:", collector.IDs())

	collector.Reset()
	err = store.SearchNear(context.Background(), center, 300, lods, "amenity:cafe", collector)
	util.PanicIfErr(err, "search near fail")
	fmt.Println("cafe within 300m:", collector.IDs())

	sb := &strings.Builder{}
	util.PanicIfErr(store.DumpShardInfo(qk, sb), "dump shard fail")
	fmt.Println(sb.String())

	fmt.Println("erase range:", store.EraseRange(qk.BoundingBox(), lods))
	util.PanicIfErr(store.Erase(qk), "erase fail")
	fmt.Println("after erase has data:", store.HasData(qk))
	fmt.Println("cache:", util.JSONString(store.CacheStats()))
}
