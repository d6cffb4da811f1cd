// Package hocr parses the per-token markup written by the external recognizer
// into positioned words.
//
// The recognizer emits an HTML document in which every recognized word is an
// element carrying the class 'ocrx_word' and a title attribute holding its
// geometry:
//
//	<span class='ocrx_word' title='bbox 10 12 54 30; x_wconf 91'>John</span>
//
// Words are normally nested in 'ocr_line' elements whose title may carry a
// 'baseline slope offset' property. The parser keeps that relation so every
// word can report the baseline row it sits on.
//
// Key Types:
//
// - Document: the parsed result, one entry per 'ocr_page'
// - Line: a line of words with its optional baseline
// - Word: the text and box of one 'ocrx_word'
//
// Main Functions:
//
// - Parse: converts raw markup into a Document
// - ParseTitle / ParseBoundingBoxFromTitle: decode hOCR title properties
package hocr
