package notifications

type Notifier interface {
	NotifyDownloadStart(name string)
	NotifyDownloadComplete(name string)
	NotifyDownloadError(name string, reason string)
	Test() error
}
