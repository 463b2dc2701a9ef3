package loader

import "github.com/VictoriaMetrics/metrics"

const (
	tierMemoryDecoded = "memory_decoded"
	tierDiskDecoded   = "disk_decoded"
	tierMemoryRaw     = "memory_raw"
	tierDiskRaw       = "disk_raw"
	tierArchive       = "archive"
)

var (
	hitsMemoryDecoded = metrics.NewCounter(`bookimg_loader_hits_total{tier="` + tierMemoryDecoded + `"}`)
	hitsDiskDecoded   = metrics.NewCounter(`bookimg_loader_hits_total{tier="` + tierDiskDecoded + `"}`)
	hitsMemoryRaw     = metrics.NewCounter(`bookimg_loader_hits_total{tier="` + tierMemoryRaw + `"}`)
	hitsDiskRaw       = metrics.NewCounter(`bookimg_loader_hits_total{tier="` + tierDiskRaw + `"}`)
	hitsArchive       = metrics.NewCounter(`bookimg_loader_hits_total{tier="` + tierArchive + `"}`)

	unavailableTotal    = metrics.NewCounter("bookimg_loader_unavailable_total")
	decodeFailuresTotal = metrics.NewCounter("bookimg_loader_decode_failures_total")
	archiveReadsTotal   = metrics.NewCounter("bookimg_loader_archive_reads_total")
	archiveReadBytes    = metrics.NewCounter("bookimg_loader_archive_read_bytes_total")
	warmedTotal         = metrics.NewCounter("bookimg_loader_warmed_total")
)
