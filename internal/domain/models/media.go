package models

// MediaFile файл, скачанный в локальное медиахранилище
type MediaFile struct {
	SourceUUID string
	SourceURL  string
	LocalPath  string
	MimeType   string
	Size       int64
}

// PayloadInfo сведения о сохраненном файле выгрузки
type PayloadInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"`
}
